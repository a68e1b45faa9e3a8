package models

import "time"

// Attributes are open namespaced key/value data attached to an object.
type Attributes map[string]map[string]*string

// Merge applies patch to a copy of a and returns it. A nil value deletes the
// key, any other value overwrites it, keys not named in patch survive.
// Namespaces left without keys are dropped.
func (a Attributes) Merge(patch Attributes) Attributes {
	out := make(Attributes, len(a))
	for ns, kv := range a {
		m := make(map[string]*string, len(kv))
		for k, v := range kv {
			if v != nil {
				m[k] = v
			}
		}
		out[ns] = m
	}
	for ns, kv := range patch {
		m, ok := out[ns]
		if !ok {
			m = make(map[string]*string, len(kv))
			out[ns] = m
		}
		for k, v := range kv {
			if v == nil {
				delete(m, k)
				continue
			}
			s := *v
			m[k] = &s
		}
	}
	for ns, kv := range out {
		if len(kv) == 0 {
			delete(out, ns)
		}
	}
	return out
}

// Get returns the value of ns/key.
func (a Attributes) Get(ns, key string) (string, bool) {
	v, ok := a[ns][key]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Object is a business object, a contact in the current schema.
type Object struct {
	ContextID      int
	ID             int
	FolderID       int
	CreatedBy      int
	ModifiedBy     int
	CreatedAt      time.Time
	LastModified   time.Time
	InternalUserID int

	Values     map[Field]string
	Attributes Attributes
}

// Value returns the value field f, or "" when unset.
func (o *Object) Value(f Field) string { return o.Values[f] }

// Set stores a value field, allocating the map on first use.
func (o *Object) Set(f Field, v string) {
	if o.Values == nil {
		o.Values = make(map[Field]string)
	}
	o.Values[f] = v
}

func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	c.Values = make(map[Field]string, len(o.Values))
	for k, v := range o.Values {
		c.Values[k] = v
	}
	c.Attributes = Attributes(nil).Merge(o.Attributes)
	return &c
}

// ObjectRef names an object together with the folder it is expected in.
type ObjectRef struct {
	ObjectID int
	FolderID int
}

// Tombstone records the deletion of an object from a folder.
type Tombstone struct {
	ContextID  int
	Seq        int64
	ObjectID   int
	FolderID   int
	CreatedBy  int
	ModifiedBy int
	DeletedAt  time.Time
}

// ToMillis converts t into the store's millisecond timestamps.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
