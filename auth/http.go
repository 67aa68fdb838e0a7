package auth

import (
	"encoding/base64"
	"net/http"

	"github.com/mevdschee/tqingest/ilp"
)

// HTTPAuth holds the credentials attached to every ILP/HTTP request:
// either a bearer token or a username and password.
type HTTPAuth struct {
	Username string
	Password string
	Token    string
}

// NewHTTPAuth validates the credential combination.
func NewHTTPAuth(username, password, token string) (HTTPAuth, error) {
	a := HTTPAuth{Username: username, Password: password, Token: token}
	switch {
	case token != "" && (username != "" || password != ""):
		return HTTPAuth{}, ilp.Errorf(ilp.ErrConfig,
			"Use either a bearer token or a username and password, not both.")
	case username != "" && password == "":
		return HTTPAuth{}, ilp.Errorf(ilp.ErrConfig, "The password must be set when the username is set.")
	case password != "" && username == "":
		return HTTPAuth{}, ilp.Errorf(ilp.ErrConfig, "The username must be set when the password is set.")
	}
	return a, nil
}

// Header returns the Authorization header value, or "" without credentials.
func (a HTTPAuth) Header() string {
	switch {
	case a.Token != "":
		return "Bearer " + a.Token
	case a.Username != "":
		creds := a.Username + ":" + a.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	}
	return ""
}

// Apply sets the Authorization header on req.
func (a HTTPAuth) Apply(req *http.Request) {
	if h := a.Header(); h != "" {
		req.Header.Set("Authorization", h)
	}
}
