package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// payloadFlags are shared by commands that send a JSON body.
func payloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "data",
			Usage: "JSON request body",
		},
		&cli.StringSliceFlag{
			Name:  "set",
			Usage: "set a body field as path=value (repeatable); values that parse as JSON are sent as JSON",
		},
	}
}

// printJSON writes raw to the command's output, narrowed to --field when given.
func printJSON(cmd *cli.Command, raw json.RawMessage) error {
	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}

	if len(raw) == 0 {
		return nil
	}
	if !gjson.ValidBytes(raw) {
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}

	result := gjson.ParseBytes(raw)
	if field := cmd.String("field"); field != "" {
		result = result.Get(field)
		if !result.Exists() {
			return fmt.Errorf("field %q not found in response", field)
		}
	}

	out := result.String()
	if result.IsObject() || result.IsArray() {
		out = strings.TrimRight(gjson.Get(result.Raw, "@pretty").Raw, "\n")
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

// buildPayload starts from --data (or an empty object) and applies each --set in order.
func buildPayload(cmd *cli.Command) (json.RawMessage, error) {
	return applySets([]byte(cmd.String("data")), cmd.StringSlice("set"))
}

func applySets(base []byte, sets []string) (json.RawMessage, error) {
	body := base
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return nil, errors.New("--data is not valid JSON")
	}

	for _, set := range sets {
		path, value, ok := strings.Cut(set, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q: want path=value", set)
		}

		var err error
		if json.Valid([]byte(value)) {
			body, err = sjson.SetRawBytes(body, path, []byte(value))
		} else {
			body, err = sjson.SetBytes(body, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("applying --set %q: %w", set, err)
		}
	}
	return body, nil
}

// readSecret prompts for a secret without echo on a terminal, or reads one line
// from stdin when input is piped.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(secret), nil
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

// requireArg returns the first positional argument or a usage error naming it.
func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return v, nil
}
