package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// env_ holds the two settings every verb needs. Like cmd/issue-token, it
// deliberately does not reuse config.Config: an operator CLI talks to
// the API over HTTP and should not need DATABASE_URL to do so.
type env_ struct {
	Addr  string `env:"JOURNEY_ADDR" envDefault:"http://localhost:8080"`
	Token string `env:"JOURNEY_TOKEN,required"`
}

const usage = `usage: journeyctl <verb> [flags]

verbs:
  retry    -execution <id> -node <name>            force a retry past max_retries
  get      -execution <id> -node <name> [-wait]    read a node value
  set      -execution <id> -node <name> -value <json>  set an input node
  archive  -execution <id>                         archive an execution

JOURNEY_ADDR and JOURNEY_TOKEN (from cmd/issue-token) must be set.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var cfg env_
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("journeyctl: %v", err)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	execution := fs.String("execution", "", "execution id")
	node := fs.String("node", "", "node name")
	val := fs.String("value", "", "JSON value for set")
	wait := fs.Bool("wait", false, "block until the value is set")
	_ = fs.Parse(os.Args[2:])

	if *execution == "" {
		log.Fatal("journeyctl: -execution is required")
	}

	c := client{addr: cfg.Addr, token: cfg.Token, http: &http.Client{Timeout: 5 * time.Minute}}

	var err error
	switch os.Args[1] {
	case "retry":
		err = c.do(http.MethodPost, fmt.Sprintf("/executions/%s/nodes/%s/retry", *execution, requireNode(node)), nil)
	case "get":
		path := fmt.Sprintf("/executions/%s/values/%s", *execution, requireNode(node))
		if *wait {
			path += "?wait=any"
		}
		err = c.do(http.MethodGet, path, nil)
	case "set":
		if *val == "" {
			log.Fatal("journeyctl: -value is required for set")
		}
		var parsed any
		if uerr := json.Unmarshal([]byte(*val), &parsed); uerr != nil {
			log.Fatalf("journeyctl: -value is not valid JSON: %v", uerr)
		}
		body, _ := json.Marshal(map[string]any{"values": map[string]any{requireNode(node): parsed}})
		err = c.do(http.MethodPost, fmt.Sprintf("/executions/%s/values", *execution), body)
	case "archive":
		err = c.do(http.MethodPost, fmt.Sprintf("/executions/%s/archive", *execution), nil)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("journeyctl: %v", err)
	}
}

func requireNode(node *string) string {
	if *node == "" {
		log.Fatal("journeyctl: -node is required")
	}
	return *node
}

type client struct {
	addr  string
	token string
	http  *http.Client
}

// do issues one request and streams the JSON response to stdout. Non-2xx
// responses are printed too, then reported as the exit status: the body
// is the API's own error message and is more useful than a bare code.
func (c *client) do(method, path string, body []byte) error {
	req, err := http.NewRequest(method, c.addr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Println(string(out))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
