// Command dirctl administers the user directory through its gRPC API.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/userdir/internal/auth"
	"github.com/and161185/userdir/internal/model"
	grpcserver "github.com/and161185/userdir/internal/server/grpc"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `dirctl
Usage:
  dirctl [-addr HOST:PORT] [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  token   -key <signing key> [-sub name] [-role admin|user] [-ttl 1h]   (saves token)
  get     -uuid <uuid>
  lookup  -id <external id>
  create  -id <external id> [-username name] [-role admin|user] [-apikey key]
  update  -uuid <uuid> [-id external id] [-username name] [-role admin|user] [-apikey key]
  delete  -uuid <uuid>
`

// globalOpts are the connection flags shared by all RPC commands.
type globalOpts struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

// dialFn is replaced in tests.
var dialFn = dial

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var g globalOpts
	fs := flag.NewFlagSet("dirctl", flag.ContinueOnError)
	fs.StringVar(&g.addr, "addr", "localhost:9090", "server addr")
	fs.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	fs.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	fs.BoolVar(&g.plaintext, "plaintext", false, "no TLS (dev)")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usageText) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	switch cmd {
	case "version":
		fmt.Fprintf(out, "dirctl %s (%s)\n", version, buildDate)
		return nil
	case "token":
		return cmdToken(rest, out)
	case "get", "lookup", "create", "update", "delete":
		return cmdRPC(ctx, g, cmd, rest, out)
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func cmdToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("JWT_KEY"), "HS256 signing key")
	sub := fs.String("sub", "dirctl", "token subject")
	role := fs.String("role", string(model.RoleAdmin), "caller role")
	ttl := fs.Duration("ttl", time.Hour, "token TTL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("need -key or JWT_KEY")
	}
	if r := model.Role(*role); r == "" || !r.Valid() {
		return fmt.Errorf("bad role %q", *role)
	}
	tok, exp, err := auth.Issue([]byte(*key), *sub, model.Role(*role), *ttl)
	if err != nil {
		return err
	}
	if err := saveToken(tok, exp); err != nil {
		return err
	}
	fmt.Fprintf(out, "token saved, expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func cmdRPC(ctx context.Context, g globalOpts, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	key := fs.String("uuid", "", "record uuid")
	extID := fs.String("id", "", "external id")
	username := fs.String("username", "", "display name")
	role := fs.String("role", "", "role (admin|user)")
	apiKey := fs.String("apikey", "", "API key (admin only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := loadToken()
	if err != nil {
		return err
	}
	cc, closer, err := dialFn(ctx, g, token)
	if err != nil {
		return err
	}
	defer closer.Close()
	cli := grpcserver.NewClient(cc)

	var resp proto.Message
	switch cmd {
	case "get":
		if *key == "" {
			return errors.New("need -uuid")
		}
		resp, err = cli.Get(ctx, *key)
	case "lookup":
		if *extID == "" {
			return errors.New("need -id")
		}
		resp, err = cli.LookupByExternalID(ctx, *extID)
	case "create", "update":
		if cmd == "update" && *key == "" {
			return errors.New("need -uuid")
		}
		rec := record(*key, *extID, *username, *role, *apiKey)
		if cmd == "create" {
			resp, err = cli.Create(ctx, rec)
		} else {
			resp, err = cli.Update(ctx, rec)
		}
	case "delete":
		if *key == "" {
			return errors.New("need -uuid")
		}
		if err := cli.Delete(ctx, *key); err != nil {
			return err
		}
		fmt.Fprintln(out, "deleted")
		return nil
	}
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

// record builds a request Struct from the non-empty flags.
func record(key, extID, username, role, apiKey string) *structpb.Struct {
	f := map[string]*structpb.Value{}
	for name, v := range map[string]string{
		model.AttrUUID:       key,
		model.AttrExternalID: extID,
		model.AttrUsername:   username,
		model.AttrRole:       role,
		model.AttrAPIKey:     apiKey,
	} {
		if v != "" {
			f[name] = structpb.NewStringValue(v)
		}
	}
	return &structpb.Struct{Fields: f}
}

func loadTLS(g globalOpts) (credentials.TransportCredentials, error) {
	switch {
	case g.plaintext:
		return insecure.NewCredentials(), nil
	case g.insecure:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case g.caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(g.caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(_ context.Context, g globalOpts, bearer string) (grpc.ClientConnInterface, io.Closer, error) {
	creds, err := loadTLS(g)
	if err != nil {
		return nil, nil, err
	}
	cc, err := grpc.NewClient(g.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(grpcserver.BearerCreds{Token: bearer, Insecure: g.plaintext}),
	)
	if err != nil {
		return nil, nil, err
	}
	return cc, cc, nil
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
