package providers

import (
	"fmt"
	"pvz/internal/structures"
	"strings"

	"github.com/gookit/validate"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.One())
	}

	t := cv.conf.Thresholds
	if t.Fresh > t.Rotting || t.Rotting > t.Ancient {
		return fmt.Errorf("invalid config: thresholds must satisfy fresh <= rotting <= ancient, got %d/%d/%d", t.Fresh, t.Rotting, t.Ancient)
	}

	for _, url := range cv.conf.Relays.Default {
		if !strings.HasPrefix(url, "wss://") && !strings.HasPrefix(url, "ws://") {
			return fmt.Errorf("invalid config: relay %q must use ws:// or wss://", url)
		}
	}
	return nil
}
