package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/assignment"
)

// mkRoot creates a tenant's filesystem storage base directory. Idempotent.
func (cli *commandLine) mkRoot(tenantID string) error {
	root := assignment.TenantRoot(cli.conf, tenantID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "creating tenant root %s", root)
	}
	fmt.Fprintf(cli.out, "tenant %q storage root: %s\n", tenantID, root)
	return nil
}
