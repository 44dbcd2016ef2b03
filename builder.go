package askscot

import (
	"github.com/alexandre-normand/askscot/ai"
	"github.com/spf13/viper"
)

// Builder holds an askscot instance to build
type Builder struct {
	bot *Askscot
	err error
}

// NewBot returns a new Builder used to set up a new askscot
func NewBot(name string, v *viper.Viper, options ...Option) (sb *Builder) {
	sb = new(Builder)
	sb.bot, sb.err = New(name, v, options...)

	return sb
}

// WithAnswerProvider sets the provider answering questions
func (sb *Builder) WithAnswerProvider(p ai.Provider) *Builder {
	return sb.WithAnswerProviderErr(p, nil)
}

// WithAnswerProviderErr sets a provider that has a creation function returning (ai.Provider, error)
func (sb *Builder) WithAnswerProviderErr(p ai.Provider, err error) *Builder {
	if sb.err == nil && err != nil {
		sb.err = err
	}

	if sb.err != nil {
		return sb
	}

	sb.err = sb.bot.RegisterAnswerProvider(p)

	return sb
}

// Build returns the built askscot instance. If there was an error during
// setup, the error is returned along with a nil askscot
func (sb *Builder) Build() (s *Askscot, err error) {
	if sb.err != nil {
		return nil, sb.err
	}

	return sb.bot, nil
}
