// Command certgen writes a development CA and a server certificate signed by
// it. Point the server at server.crt/server.key and the client at ca.crt.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couplegram/couplegram/internal/certgen"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	hosts := fs.String("hosts", "localhost,127.0.0.1", "comma separated server host names and IPs")
	days := fs.Int("days", 365, "server certificate validity in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ca, err := loadOrCreateCA(*dir)
	if err != nil {
		return err
	}
	server, err := ca.IssueServer(splitHosts(*hosts), time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	if err := server.WriteFiles(*dir, "server"); err != nil {
		return err
	}
	fmt.Printf("certificates written to %s\n", *dir)
	return nil
}

// loadOrCreateCA reuses an existing CA so that clients keep trusting
// reissued server certificates.
func loadOrCreateCA(dir string) (*certgen.Authority, error) {
	certPath, keyPath := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	if _, err := os.Stat(certPath); err == nil {
		return certgen.LoadAuthority(certPath, keyPath)
	}
	ca, err := certgen.NewAuthority("couplegram dev CA", 10*365*24*time.Hour)
	if err != nil {
		return nil, err
	}
	pair, err := ca.Encode()
	if err != nil {
		return nil, err
	}
	if err := pair.WriteFiles(dir, "ca"); err != nil {
		return nil, err
	}
	return ca, nil
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
