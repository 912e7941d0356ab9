package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/proctor/internal/keys"
	"github.com/davidahmann/proctor/internal/policy"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "keygen":
		return handleKeygen(args[2:], stdout, stderr)
	case "policy":
		return handlePolicy(args[2:], stdout, stderr)
	case "audit":
		return handleAudit(args[2:], stdout, stderr)
	case "status":
		return handleStatus(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleKeygen(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "key id for the registry snippet")
	scopes := fs.String("scopes", "safety_override", "comma-separated scopes")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	secret, err := keys.GenerateSecret()
	if err != nil {
		fmt.Fprintln(stderr, "generate secret:", err)
		return 1
	}

	// The secret is printed once and never stored; only the hash goes in
	// the registry file.
	fmt.Fprintf(stdout, "secret: %s\n", secret)
	fmt.Fprintf(stdout, "secret_hash: %s\n", keys.HashSecret(secret))
	if *id != "" {
		fmt.Fprintf(stdout, "\nkeys:\n  - id: %s\n    secret_hash: %s\n    scopes: [%s]\n", *id, keys.HashSecret(secret), *scopes)
	}
	return 0
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		fs := flag.NewFlagSet("policy lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "policy lint requires <policy_path>")
			fs.Usage()
			return 2
		}
		snap, err := policy.Load(fs.Arg(0), time.Now())
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok policy_id=%s policy_version=%s policy_hash=%s\n",
			snap.Document.PolicyID, snap.Document.PolicyVersion, snap.Hash)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func handleAudit(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "verify":
		return handleAuditVerify(args[1:], stdout, stderr)
	case "export":
		return handleAuditExport(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleAuditVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("PROCTOR_ADDR", defaultAddr), "Proctor API address")
	token := fs.String("token", os.Getenv("PROCTOR_TOKEN"), "bearer token")
	from := fs.Uint64("from", 0, "first sequence number (0 = chain start)")
	to := fs.Uint64("to", 0, "last sequence number (0 = chain head)")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	url := fmt.Sprintf("%s/v1/audit/verify?from=%d&to=%d", *addr, *from, *to)
	respBody, status, err := httpGet(http.DefaultClient, url, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "verify failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	var payload struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}

	if payload.Valid {
		fmt.Fprintln(stdout, "valid=true")
		return 0
	}
	fmt.Fprintf(stdout, "valid=false error=%s\n", payload.Error)
	return 1
}

func handleAuditExport(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("PROCTOR_ADDR", defaultAddr), "Proctor API address")
	token := fs.String("token", os.Getenv("PROCTOR_TOKEN"), "bearer token")
	from := fs.Uint64("from", 0, "first sequence number (0 = chain start)")
	to := fs.Uint64("to", 0, "last sequence number (0 = chain head)")
	entryType := fs.String("type", "", "filter by entry type")
	outPath := fs.String("out", "", "write bundle to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	url := fmt.Sprintf("%s/v1/audit/export?from=%d&to=%d&type=%s", *addr, *from, *to, *entryType)
	respBody, status, err := httpGet(http.DefaultClient, url, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "export failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, respBody, 0o600); err != nil {
			fmt.Fprintln(stderr, "write output:", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", *outPath)
		return 0
	}
	_, _ = stdout.Write(respBody)
	return 0
}

func handleStatus(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("PROCTOR_ADDR", defaultAddr), "Proctor API address")
	token := fs.String("token", os.Getenv("PROCTOR_TOKEN"), "bearer token")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/status", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "status failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		PolicyID     string `json:"policy_id"`
		Mode         string `json:"mode"`
		AuditEntries uint64 `json:"audit_entries"`
		HeadHash     string `json:"audit_head_hash"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "policy_id=%s mode=%s audit_entries=%d head=%s\n",
		payload.PolicyID, payload.Mode, payload.AuditEntries, payload.HeadHash)
	return 0
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Proctor CLI

Usage:
  proctor keygen [--id KEY_ID] [--scopes SCOPES]
  proctor policy lint <policy_path>
  proctor audit verify [--from N] [--to N] [--addr URL] [--token TOKEN]
  proctor audit export [--from N] [--to N] [--type TYPE] [--out FILE] [--addr URL] [--token TOKEN]
  proctor status [--json] [--addr URL] [--token TOKEN]
`)
}
