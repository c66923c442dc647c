package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// sealCredentials seals "username:password" with the app secret and writes
// the blob where the API's credential store expects it
// (config/credentials/<id>.sealed). The blob is also printed so it can be
// provisioned elsewhere.
func (cli *commandLine) sealCredentials(id, username, password string) error {
	sealed, err := cli.secrets.Seal(username + ":" + password)
	if err != nil {
		return errors.Wrap(err, "sealing credential")
	}

	dir := filepath.Join(cli.conf.WorkDir, "config", "credentials")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "creating credential store")
	}
	path := filepath.Join(dir, id+".sealed")
	if err := os.WriteFile(path, []byte(sealed), 0o600); err != nil {
		return errors.Wrap(err, "writing sealed credential")
	}

	fmt.Fprintf(cli.out, "credential %q sealed to %s\n%s\n", id, path, sealed)
	return nil
}
