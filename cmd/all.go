package cmd

import (
	_ "ccs-host/cmd/root"
	_ "ccs-host/cmd/run"
	_ "ccs-host/cmd/sessions"
	_ "ccs-host/cmd/status"
	_ "ccs-host/cmd/stop"
	_ "ccs-host/cmd/upgrade"
)
