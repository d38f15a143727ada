package commerce

import (
	"github.com/smallbiznis/paysync/internal/commerce/client"
	"go.uber.org/fx"
)

var Module = fx.Module("commerce",
	fx.Provide(client.NewClient),
)
