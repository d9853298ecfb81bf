package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Optional module capabilities. LoadModule calls Configure, Provision and
// Validate in that order; App.Start calls Start in load order and App.Stop
// calls Stop in reverse, then Close.

// Configurable modules receive the YAML node listed under their ID in the
// config's modules map. Configure is skipped when the module is listed
// without a body.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, open resources and publish services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their final configuration. No side effects.
type Validator interface {
	Validate() error
}

// Starter modules launch listeners or background loops.
type Starter interface {
	Start() error
}

// Stopper modules stop what Start launched.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Closer modules release handles such as database connections.
type Closer interface {
	Close() error
}

// Reloader modules apply a new config without a restart. ctx carries the
// freshly loaded module configs.
type Reloader interface {
	Reload(ctx *AppContext) error
}
