package root

import (
	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/palmyra-records/apps/cli/cmd/indexjobs"
	tenantcmd "github.com/zenGate-Global/palmyra-records/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command(opts))
	Root().AddCommand(tenantcmd.Command(opts))
	Root().AddCommand(indexjobs.Command(opts))
}
