package util

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the relay's environment variables, SERPD_MAX_CONNS sets
// --max-conns and so on.
const EnvPrefix = "SERPD_"

// SetFlagsFromEnvVars fills in the relay flags that weren't given on the
// command line from their SERPD_ variables. Call it after the flags are
// parsed.
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}

		envName := EnvPrefix + flagNameToUpper(f.Name)

		if value, present := os.LookupEnv(envName); present {
			err := flags.Set(f.Name, value)
			if err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		}
	})
}

// flagNameToUpper turns request-timeout into REQUEST_TIMEOUT.
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
