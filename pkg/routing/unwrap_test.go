package routing

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultUnwrapper(t *testing.T) {
	u := DefaultUnwrapper{}
	orderType := typeOf[Order]()

	tests := []struct {
		name string
		in   reflect.Type
		want reflect.Type
	}{
		{"slice", typeOf[[]Order](), orderType},
		{"pointer", typeOf[*Order](), orderType},
		{"slice of pointers", typeOf[[]*Order](), orderType},
		{"array", typeOf[[3]Order](), orderType},
		{"map values", typeOf[map[string]Order](), orderType},
		{"element typer wrapper", typeOf[OrderPage](), orderType},
		{"pointer to wrapper", typeOf[*OrderPage](), orderType},
		{"plain entity", orderType, orderType},
		{"scalar", typeOf[int](), typeOf[int]()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectiveEntityType(u, tt.in))
		})
	}
}

func TestUnwrapSingleStep(t *testing.T) {
	u := DefaultUnwrapper{}

	inner, ok := u.Unwrap(typeOf[[]Order]())
	assert.True(t, ok)
	assert.Equal(t, typeOf[Order](), inner)

	same, ok := u.Unwrap(typeOf[Order]())
	assert.False(t, ok)
	assert.Equal(t, typeOf[Order](), same)
}

func TestUnwrapDeeplyNested(t *testing.T) {
	u := DefaultUnwrapper{}
	deep := typeOf[[][][]*Order]()
	assert.Equal(t, typeOf[Order](), effectiveEntityType(u, deep))
}
