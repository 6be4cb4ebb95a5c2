package schema

import (
	"fmt"
	"strings"
)

// InstrumentClass determines which price-limit band applies to a symbol.
type InstrumentClass string

const (
	// ClassOrdinary is a main-board instrument.
	ClassOrdinary InstrumentClass = "ordinary"
	// ClassRestricted is an instrument under special treatment (tighter band).
	ClassRestricted InstrumentClass = "restricted"
	// ClassGrowth is a growth-board instrument (wider band).
	ClassGrowth InstrumentClass = "growth"
)

// Valid reports whether the class is known.
func (c InstrumentClass) Valid() bool {
	switch c {
	case ClassOrdinary, ClassRestricted, ClassGrowth:
		return true
	}
	return false
}

// Instrument describes one tradable security in the run's universe.
type Instrument struct {
	Symbol string
	Name   string
	Class  InstrumentClass
}

// Registry stores the security universe for a run. It is built once from
// configuration and read-only afterwards.
type Registry struct {
	instruments []Instrument
	symbolToIdx map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbolToIdx: make(map[string]int)}
}

// Add registers an instrument. An empty class is inferred from the symbol.
func (r *Registry) Add(inst Instrument) error {
	if inst.Symbol == "" {
		return fmt.Errorf("instrument symbol is empty")
	}
	if _, ok := r.symbolToIdx[inst.Symbol]; ok {
		return fmt.Errorf("instrument already exists: %s", inst.Symbol)
	}
	if inst.Class == "" {
		inst.Class = InferClass(inst.Symbol, inst.Name)
	}
	if !inst.Class.Valid() {
		return fmt.Errorf("invalid instrument class %q for %s", inst.Class, inst.Symbol)
	}
	r.symbolToIdx[inst.Symbol] = len(r.instruments)
	r.instruments = append(r.instruments, inst)
	return nil
}

// Instrument returns the instrument for a symbol.
func (r *Registry) Instrument(symbol string) (Instrument, bool) {
	idx, ok := r.symbolToIdx[symbol]
	if !ok {
		return Instrument{}, false
	}
	return r.instruments[idx], true
}

// Has reports whether the symbol is part of the universe.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.symbolToIdx[symbol]
	return ok
}

// Symbols returns the universe symbols in registration order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.instruments))
	for i, inst := range r.instruments {
		out[i] = inst.Symbol
	}
	return out
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	return len(r.instruments)
}

// InferClass guesses the instrument class from A-share naming conventions:
// 300/688 prefixes are growth boards, ST-flagged names are restricted.
func InferClass(symbol, name string) InstrumentClass {
	upper := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(name), "*"))
	if strings.HasPrefix(upper, "ST") {
		return ClassRestricted
	}
	if strings.HasPrefix(symbol, "300") || strings.HasPrefix(symbol, "688") {
		return ClassGrowth
	}
	return ClassOrdinary
}
