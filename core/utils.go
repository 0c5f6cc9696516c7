package core

import (
	"reflect"

	"github.com/encodeous/bgpsim/state"
)

func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

func TryGet[T state.Module](s *state.State) (T, bool) {
	m, ok := s.Modules[reflect.TypeFor[T]().String()].(T)
	return m, ok
}
