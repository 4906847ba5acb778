package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
)

// VERSION is set at build time with -ldflags "-X .../commands.VERSION=v1.2.3".
var VERSION = "v0.1.0"

var VersionCmd = Version{}

// Version displays the CLI version.
type Version struct {
}

func (c *Version) Name() string {
	return "version"
}

func (c *Version) Description() string {
	return "Displays the current version"
}

func (c *Version) Usage() string {
	return ""
}

func (c *Version) Help() string {
	return fmt.Sprintf("Displays the %s version in the format v<major>.<minor>.<build> e.g. v1.00.10", APP)
}

func (c *Version) Flags(flagset *pflag.FlagSet) {
}

func (c *Version) Execute(ctx context.Context, options *Options) error {
	fmt.Printf("%s\n", VERSION)

	return nil
}
