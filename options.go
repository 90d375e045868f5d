package casc

import (
	"log/slog"

	"github.com/brecky/casc/common"
)

const (
	defaultHeaderCacheSize  = 4096
	defaultIndexConcurrency = 4
)

type options struct {
	logger           *slog.Logger
	locale           common.LocaleFlags
	headerCacheSize  int
	verifyChecksums  bool
	listfile         string
	indexConcurrency int
}

// Option configures an Explorer.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger:           slog.New(slog.DiscardHandler),
		locale:           common.LocaleAll,
		headerCacheSize:  defaultHeaderCacheSize,
		indexConcurrency: defaultIndexConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocale selects the variant read when a file exists in several
// locales. The default accepts every locale and reads the first variant.
func WithLocale(locale common.LocaleFlags) Option {
	return func(o *options) {
		if locale != 0 {
			o.locale = locale
		}
	}
}

// WithHeaderCacheSize sets how many file headers Header memoises.
func WithHeaderCacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.headerCacheSize = size
		}
	}
}

// WithVerifyChecksums enables the md5 check of every BLTE chunk read.
func WithVerifyChecksums(verify bool) Option {
	return func(o *options) {
		o.verifyChecksums = verify
	}
}

// WithListfile names a file listing the paths of the storage, one per line.
// It supplies names to storages whose root manifest only holds hashes.
func WithListfile(path string) Option {
	return func(o *options) {
		o.listfile = path
	}
}

// WithIndexConcurrency bounds how many index files loaders parse at once.
func WithIndexConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.indexConcurrency = n
		}
	}
}
