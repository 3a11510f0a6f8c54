package server

// note that these are *not* the DAO models; those are distinct and closer to
// the DB format they are in. Rather these are the models that are sent to the
// client.

// ConnectResponse is the body of a successful GET /. Messages holds the
// Welcome state's greeting.
type ConnectResponse struct {
	Token    string   `json:"token"`
	Messages []string `json:"msg"`
}

// SendResponse is the body of a successful GET /send. Exited tells the
// client that the conversation is over and the token is dead.
type SendResponse struct {
	Messages []string `json:"msg"`
	Exited   bool     `json:"exit"`
}

// EchoResponse is the body of a successful GET /echo. Reset tells the client
// whether to restart its idle clock from zero; the server currently never
// asks for that.
type EchoResponse struct {
	Messages []string `json:"msg"`
	Exited   bool     `json:"exit"`
	Reset    bool     `json:"reset"`
}

// TokenResponse is the body of a GET /login or GET /register. Token is null
// when the attempt failed and the session keeps its old identity.
type TokenResponse struct {
	Token *string `json:"token"`
}
