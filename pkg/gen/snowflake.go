package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the snowflake node identified by NODE_ID. Every replica must use
// a distinct id for generated record ids to stay unique.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
