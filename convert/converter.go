package convert

import (
	"fmt"
	"reflect"

	"github.com/poiesic/tuplerepo/core"
)

// Converter translates values of one host type to one store-native kind and back.
type Converter struct {
	// HostType is the Go type this converter claims.
	HostType reflect.Type
	// StoreKind is the store-native kind values are written as.
	StoreKind core.Kind

	toStore   func(reflect.Value) (any, error)
	fromStore func(any) (reflect.Value, error)
	null      func() reflect.Value
}

// New creates a converter for host type T written as the given store kind.
// from receives the raw store cell, which may be of any compatible kind.
func New[T any](kind core.Kind, to func(T) (any, error), from func(any) (T, error)) Converter {
	return Converter{
		HostType:  reflect.TypeFor[T](),
		StoreKind: kind,
		toStore: func(v reflect.Value) (any, error) {
			return to(v.Interface().(T))
		},
		fromStore: func(v any) (reflect.Value, error) {
			out, err := from(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(&out).Elem(), nil
		},
	}
}

// NewNullable is New plus a null policy: a nil store cell decodes to null().
func NewNullable[T any](kind core.Kind, to func(T) (any, error), from func(any) (T, error), null func() T) Converter {
	c := New(kind, to, from)
	c.null = func() reflect.Value {
		v := null()
		return reflect.ValueOf(&v).Elem()
	}
	return c
}

// HasNullPolicy reports whether a nil store cell may decode through this converter.
func (c Converter) HasNullPolicy() bool {
	return c.null != nil
}

func (c Converter) String() string {
	return fmt.Sprintf("%s<->%s", c.HostType, c.StoreKind)
}

func (c Converter) validate() error {
	if c.HostType == nil {
		return fmt.Errorf("converter has no host type")
	}
	switch c.StoreKind {
	case core.KindInvalid, core.KindNil:
		return fmt.Errorf("converter %s: store kind must be a concrete kind", c)
	}
	if c.toStore == nil || c.fromStore == nil {
		return fmt.Errorf("converter %s: conversion functions are required", c)
	}
	return nil
}

// encode runs toStore on a value already of HostType and checks the result kind.
func (c Converter) encode(v reflect.Value) (any, error) {
	out, err := c.toStore(v)
	if err != nil {
		return nil, wrapUnsupported(c, err)
	}
	if out == nil {
		return nil, nil
	}
	if kind := core.KindOf(out); kind != c.StoreKind {
		return nil, fmt.Errorf("%w: converter %s produced %s", core.ErrUnsupportedConversion, c, kind)
	}
	return out, nil
}

func (c Converter) decode(v any) (reflect.Value, error) {
	out, err := c.fromStore(v)
	if err != nil {
		return reflect.Value{}, wrapUnsupported(c, err)
	}
	return out, nil
}
