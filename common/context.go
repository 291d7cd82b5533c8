package common

import "io"

// A context bundles the ambient services every component needs.  Components
// normally take a Sub context, which prefixes the logger and ties the
// component's control to its parent.
type Context interface {
	io.Closer

	Config() Config
	Logger() Logger
	Control() Control
	Sub(format string, vals ...interface{}) Context
}

type ctx struct {
	config  Config
	logger  Logger
	control Control
}

func NewContext(config Config) Context {
	return NewContextWithLogger(config, NewStandardLogger(config))
}

func NewContextWithLogger(config Config, logger Logger) Context {
	return &ctx{config: config, logger: logger, control: NewControl(nil)}
}

// A context suitable for tests.  Logs at debug level to stderr.
func NewEmptyContext() Context {
	return NewContext(NewConfig(map[string]interface{}{confLoggerLevel: "debug"}))
}

func (c *ctx) Close() error {
	return c.control.Close()
}

func (c *ctx) Config() Config {
	return c.config
}

func (c *ctx) Logger() Logger {
	return c.logger
}

func (c *ctx) Control() Control {
	return c.control
}

func (c *ctx) Sub(format string, vals ...interface{}) Context {
	return &ctx{
		config:  c.config,
		logger:  FormatLogger(c.logger, fmtString(format), vals...),
		control: c.control.Sub(),
	}
}

type fmtString string

func (f fmtString) String() string {
	return string(f)
}
