package log

import "github.com/spf13/pflag"

type Options struct {
	Name          string
	Level         string // debug, info, warn, error
	Format        string // console or json
	EnableColor   bool
	DisableCaller bool
	CallerSkip    int
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		CallerSkip:  1,
	}
}

// AddFlags binds the options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level (debug, info, warn, error).")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output format (console or json).")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit file:line from log entries.")
}
