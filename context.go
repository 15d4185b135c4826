package tmplet

import (
	"fmt"
	"slices"
	"strings"
)

// IncludeContext tracks partial expansion for one view.
type IncludeContext struct {
	// Stack is the chain of files being expanded, outermost first. The view itself may sit at
	// the bottom without being listed in Includes.
	Stack []string
	// Includes lists every partial pulled in, in first-seen order
	Includes []string
}

func (c *IncludeContext) push(name string) error {
	if slices.Contains(c.Stack, name) {
		chain := append(slices.Clone(c.Stack), name)
		return fmt.Errorf("%w: %s", ErrPartialCycle, strings.Join(chain, " -> "))
	}
	c.Stack = append(c.Stack, name)
	if !slices.Contains(c.Includes, name) {
		c.Includes = append(c.Includes, name)
	}
	return nil
}

func (c *IncludeContext) pop() {
	c.Stack = c.Stack[:len(c.Stack)-1]
}
