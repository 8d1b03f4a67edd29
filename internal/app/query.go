package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/auth"
	"github.com/rbright/boltd/internal/config"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/message"
	"github.com/rbright/boltd/internal/transport"
	"github.com/rbright/boltd/internal/version"
)

// commandQuery runs one autocommit query and prints the result as
// tab-separated lines, header first.
func (r Runner) commandQuery(ctx context.Context, cfg config.Config, user, query string) int {
	table, err := fsm.TableFor(cfg.Protocol.Version)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	address, err := transport.ResolveAddress(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	client, err := transport.Dial(ctx, cfg.Listen.Network, address, clientTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer client.Close()

	token := message.AuthToken{Scheme: auth.SchemeNone}
	if user != "" {
		token = message.AuthToken{Scheme: auth.SchemeBasic, Principal: user, Credentials: os.Getenv("BOLTD_PASSWORD")}
	}

	steps := []message.Request{message.Hello{UserAgent: version.Server(), Auth: token}}
	if table.SeparateLogon() {
		steps = append(steps, message.Logon{Auth: token})
	}
	for _, step := range steps {
		if _, err := expectSuccess(client, step); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
	}

	run, err := expectSuccess(client, message.Run{Query: query})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	records, err := expectSuccess(client, message.Pull{N: message.StreamAll, QID: message.LastQuery})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	_ = client.Send(message.Goodbye{})

	if fields, ok := run[len(run)-1].Metadata["fields"].([]any); ok {
		fmt.Fprintln(r.Stdout, joinValues(fields))
	}
	for _, rec := range records {
		if rec.Type == transport.TypeRecord {
			fmt.Fprintln(r.Stdout, joinValues(rec.Values))
		}
	}
	return 0
}

func expectSuccess(client *transport.Client, req message.Request) ([]transport.Response, error) {
	out, err := client.Roundtrip(req)
	if err != nil {
		return nil, err
	}
	summary := out[len(out)-1]
	switch summary.Type {
	case transport.TypeSuccess:
		return out, nil
	case transport.TypeFailure:
		return nil, errors.Newf("%s: %s", summary.Code(), summary.Message())
	default:
		return nil, errors.Newf("%s was %s", req.Signature(), strings.ToLower(summary.Type))
	}
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\t")
}
