/*
Ttclient starts an interactive session against a TunaTalk server.

It connects as a guest, prints the server's greeting, and then reads user
input from stdin until the conversation ends or the "/quit" command is input.
Each line typed is sent to the server as one message, and the replies are
word-wrapped and printed to stdout. While the user is idle the client
periodically reports the idle time to the server so scripted timeout messages
arrive without any typing.

Usage:

	ttclient [flags]

The flags are:

	-v, --version
		Give the current version of the TunaTalk client and then exit.

	-u, --url SERVER_URL
		Connect to the TunaTalk server at the given base URL. Defaults to
		http://localhost:8080.

Besides regular messages, the following commands are available in a session:

	/login USERNAME PASSWORD
		Log in to an existing account. The session keeps its conversational
		position.

	/register USERNAME PASSWORD
		Create a new account and log in as it.

	/quit
		End the session.
*/
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/dekarrin/rosed"
	"github.com/dekarrin/tunatalk/internal/version"
	"github.com/spf13/pflag"
)

const (

	// ExitSuccess indicates a successful program execution.
	ExitSuccess = iota

	// ExitSessionError indicates an unsuccessful program execution due to a
	// problem during the session.
	ExitSessionError

	// ExitInitError indicates an unsuccessful program execution due to an
	// issue connecting to the server.
	ExitInitError
)

const (
	outputWidth = 80

	// echoInterval is how often the client reports its idle time to the
	// server while no message is being typed.
	echoInterval = 5 * time.Second
)

var (
	returnCode  = ExitSuccess
	flagVersion = pflag.BoolP("version", "v", false, "Gives the version info")
	flagURL     = pflag.StringP("url", "u", "http://localhost:8080", "the base URL of the TunaTalk server")
)

type connectResponse struct {
	Token    string   `json:"token"`
	Messages []string `json:"msg"`
}

type sendResponse struct {
	Messages []string `json:"msg"`
	Exited   bool     `json:"exit"`
}

type echoResponse struct {
	Messages []string `json:"msg"`
	Exited   bool     `json:"exit"`
	Reset    bool     `json:"reset"`
}

type tokenResponse struct {
	Token *string `json:"token"`
}

// client is one live session against a server. The mutex guards the token
// and the idle clock against the echo goroutine racing the input loop.
type client struct {
	http    *http.Client
	baseURL string

	mu       sync.Mutex
	token    string
	lastSent time.Time
}

func main() {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			// we are panicking, make sure we dont lose the panic just because
			// we checked
			panic("unrecoverable panic occured")
		} else {
			os.Exit(returnCode)
		}
	}()

	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return
	}

	c := &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(*flagURL, "/"),
	}

	greeting, err := c.connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		returnCode = ExitInitError
		return
	}
	printMessages(greeting)

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "> ",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: create readline config: %s\n", err.Error())
		returnCode = ExitInitError
		return
	}
	defer rl.Close()

	done := make(chan struct{})
	defer close(done)
	go c.echoLoop(done, rl)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
			returnCode = ExitSessionError
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		exited, err := c.handleLine(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
			returnCode = ExitSessionError
			return
		}
		if exited {
			return
		}
	}
}

// handleLine dispatches one line of user input, either to a local /command
// or to the server as a message. Returns true when the session is over.
func (c *client) handleLine(line string) (exited bool, err error) {
	if line == "/quit" {
		return true, nil
	}

	if strings.HasPrefix(line, "/login ") || strings.HasPrefix(line, "/register ") {
		parts := strings.Fields(line)
		if len(parts) != 3 {
			fmt.Printf("usage: %s USERNAME PASSWORD\n", parts[0])
			return false, nil
		}

		ok, err := c.authenticate(strings.TrimPrefix(parts[0], "/"), parts[1], parts[2])
		if err != nil {
			return false, err
		}
		if ok {
			fmt.Printf("You are now %s.\n", parts[1])
		} else {
			fmt.Println("That didn't work; check the username and password.")
		}
		return false, nil
	}

	msgs, exited, err := c.send(line)
	if err != nil {
		return false, err
	}
	printMessages(msgs)
	if exited {
		fmt.Println("(the conversation has ended)")
	}
	return exited, nil
}

// echoLoop periodically tells the server how long the user has been idle so
// scripted timeouts fire. It stops when the input loop finishes.
func (c *client) echoLoop(done <-chan struct{}, rl *readline.Instance) {
	ticker := time.NewTicker(echoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		msgs, exited, err := c.echo()
		if err != nil {
			// a dead token here usually means the session timed out
			// server-side; the next typed message will surface the error.
			continue
		}
		if len(msgs) > 0 {
			fmt.Println()
			printMessages(msgs)
		}
		if exited {
			fmt.Println("(the conversation has ended)")
			rl.Close()
			return
		}
		if len(msgs) > 0 {
			rl.Refresh()
		}
	}
}

func (c *client) connect() ([]string, error) {
	var resp connectResponse
	if err := c.get("/", nil, &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.lastSent = time.Now()
	c.mu.Unlock()

	return resp.Messages, nil
}

func (c *client) send(msg string) ([]string, bool, error) {
	c.mu.Lock()
	tok := c.token
	c.lastSent = time.Now()
	c.mu.Unlock()

	var resp sendResponse
	err := c.get("/send", url.Values{"msg": {msg}, "token": {tok}}, &resp)
	if err != nil {
		return nil, false, err
	}
	return resp.Messages, resp.Exited, nil
}

func (c *client) echo() ([]string, bool, error) {
	c.mu.Lock()
	tok := c.token
	idle := int(time.Since(c.lastSent) / time.Second)
	c.mu.Unlock()

	var resp echoResponse
	err := c.get("/echo", url.Values{"seconds": {strconv.Itoa(idle)}, "token": {tok}}, &resp)
	if err != nil {
		return nil, false, err
	}

	if resp.Reset {
		c.mu.Lock()
		c.lastSent = time.Now()
		c.mu.Unlock()
	}

	return resp.Messages, resp.Exited, nil
}

// authenticate runs /login or /register and swaps in the new token on
// success. A false return with nil error means the server rejected the
// credentials.
func (c *client) authenticate(endpoint, username, passwd string) (bool, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	var resp tokenResponse
	err := c.get("/"+endpoint, url.Values{"username": {username}, "passwd": {passwd}, "token": {tok}}, &resp)
	if err != nil {
		return false, err
	}
	if resp.Token == nil {
		return false, nil
	}

	c.mu.Lock()
	c.token = *resp.Token
	c.lastSent = time.Now()
	c.mu.Unlock()

	return true, nil
}

func (c *client) get(path string, params url.Values, v interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	httpResp, err := c.http.Get(reqURL)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("HTTP-%d: %s", httpResp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("HTTP-%d from server", httpResp.StatusCode)
	}

	return json.Unmarshal(body, v)
}

func printMessages(msgs []string) {
	for _, msg := range msgs {
		fmt.Println(rosed.Edit(msg).Wrap(outputWidth).String())
	}
}
