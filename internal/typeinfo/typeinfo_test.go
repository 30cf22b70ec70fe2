package typeinfo

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReflectSimpleConcurrent(t *testing.T) {
	type mystruct struct {
		ID int `db:"id"`
	}
	var st mystruct
	wg := sync.WaitGroup{}

	// Set up some concurrent access.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			_, _ = GetTypeInfo(st)
			wg.Done()
		}()
	}

	info, err := GetTypeInfo(st)
	assert.Nil(t, err)

	assert.Equal(t, reflect.Struct, info.Type.Kind())
	assert.Equal(t, "mystruct", info.Type.Name())

	wg.Wait()
}

func TestReflectStruct(t *testing.T) {
	type something struct {
		ID      int64      `db:"id,key"`
		Name    string     `db:"name,omitempty"`
		Born    *time.Time `db:"born"`
		NotInDB string
	}

	info, err := GetTypeInfo(&something{})
	assert.Nil(t, err)

	assert.Equal(t, "something", info.Type.Name())
	assert.Len(t, info.TagToField, 3)
	assert.Len(t, info.Fields, 3)

	id, ok := info.TagToField["id"]
	assert.True(t, ok)
	assert.Equal(t, "ID", id.Name)
	assert.True(t, id.Key)
	assert.False(t, id.OmitEmpty)

	name := info.Fields[1]
	assert.Equal(t, "name", name.Tag)
	assert.True(t, name.OmitEmpty)
	assert.False(t, name.Key)

	born := info.TagToField["born"]
	assert.Equal(t, reflect.TypeOf(time.Time{}), born.ValueType())

	assert.Equal(t, []string{"id"}, info.Keys())
}

func TestReflectBadTags(t *testing.T) {
	tests := []struct {
		value any
		err   string
	}{{
		value: struct {
			ID int `db:"id,unique"`
		}{},
		err: `field "ID" of : unexpected tag value "unique"`,
	}, {
		value: struct {
			ID int `db:"5id"`
		}{},
		err: `field "ID" of : invalid column name "5id" in 'db' tag`,
	}, {
		value: struct {
			ID    int `db:"id"`
			Other int `db:"id"`
		}{},
		err: `has more than one field tagged "id"`,
	}, {
		value: struct {
			ID int
		}{},
		err: `has no fields with a "db" tag`,
	}, {
		value: 5,
		err:   "can only reflect struct type, got int",
	}}

	for _, test := range tests {
		_, err := GetTypeInfo(test.value)
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), test.err)
		}
	}

	_, err := GetTypeInfo(nil)
	assert.EqualError(t, err, "cannot reflect nil value")
}

func TestBeanGetSet(t *testing.T) {
	type person struct {
		ID    int64   `db:"id,key"`
		Name  string  `db:"name"`
		Code  int32   `db:"code,omitempty"`
		Email *string `db:"email"`
	}

	p := person{ID: 1, Name: "Fred"}
	b, err := NewBean(&p)
	assert.Nil(t, err)

	v, ok := b.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Fred", v)

	v, ok = b.Get("code")
	assert.True(t, ok)
	assert.Nil(t, v)

	v, ok = b.Get("email")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = b.Get("missing")
	assert.False(t, ok)

	assert.Nil(t, b.Set("id", int32(42)))
	assert.Equal(t, int64(42), p.ID)

	assert.Nil(t, b.Set("email", "fred@example.com"))
	if assert.NotNil(t, p.Email) {
		assert.Equal(t, "fred@example.com", *p.Email)
	}

	assert.Nil(t, b.Set("email", nil))
	assert.Nil(t, p.Email)

	err = b.Set("name", 12)
	assert.EqualError(t, err, `cannot set field "Name" of type string to int`)

	err = b.Set("missing", 1)
	assert.EqualError(t, err, `person has no field tagged "missing"`)
}

func TestNewBeanErrors(t *testing.T) {
	type person struct {
		ID int `db:"id"`
	}

	_, err := NewBean(person{})
	assert.EqualError(t, err, "need pointer to struct, got struct")

	var p *person
	_, err = NewBean(p)
	assert.EqualError(t, err, "got nil pointer to person")

	info, err := GetTypeInfo(person{})
	assert.Nil(t, err)
	b := New(info)
	assert.Nil(t, b.Set("id", 7))
	assert.Equal(t, &person{ID: 7}, b.Interface())
}

func TestPropertySet(t *testing.T) {
	type person struct {
		ID   int64      `db:"id,key"`
		Name string     `db:"name"`
		Born *time.Time `db:"born"`
	}

	info, err := GetTypeInfo(person{})
	assert.Nil(t, err)

	set := info.PropertySet()
	assert.Same(t, set, info.PropertySet())
	if assert.Equal(t, 3, set.Len()) {
		paths := set.Paths()
		assert.Equal(t, "id", paths[0].Name())
		assert.Equal(t, reflect.TypeOf(int64(0)), paths[0].Type())
		assert.Equal(t, reflect.TypeOf(time.Time{}), paths[2].Type())
	}
	if ids := set.Identifiers(); assert.Len(t, ids, 1) {
		assert.Equal(t, "id", ids[0].Name())
	}

	p := person{Name: "Fred"}
	b, err := NewBean(&p)
	assert.Nil(t, err)
	assert.Same(t, set, b.PropertySet())
	v, ok := b.Value("name")
	assert.True(t, ok)
	assert.Equal(t, "Fred", v)
	assert.Nil(t, b.SetValue("id", int64(3)))
	assert.Equal(t, int64(3), p.ID)
}
