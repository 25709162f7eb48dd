package aot

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("luaot.aot")
