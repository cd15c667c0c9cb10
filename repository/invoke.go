package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/observe"
	"github.com/poiesic/tuplerepo/query"
	"github.com/poiesic/tuplerepo/storage"
)

var errorType = reflect.TypeFor[error]()

// makeFunc returns the implementation of plan's method. Calls run on the
// caller's goroutine.
func (r *Repository[E]) makeFunc(plan *query.Plan) reflect.Value {
	kind := plan.Kind.String()
	return reflect.MakeFunc(plan.Method.Type, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if !in[0].IsNil() {
			ctx = in[0].Interface().(context.Context)
		}
		args := make([]any, len(in)-1)
		for i, v := range in[1:] {
			args[i] = v.Interface()
		}

		ctx, finish := observe.StartInvocation(ctx, r.metrics, plan.Method.Name, kind)
		result, err := r.invoke(ctx, plan, args)
		finish(err)
		if err != nil {
			observe.Logger(ctx, r.logger).Debug("repository call failed", "method", plan.Method.Name, "err", err)
		}
		return results(plan, result, err)
	})
}

func results(plan *query.Plan, result reflect.Value, err error) []reflect.Value {
	errv := reflect.Zero(errorType)
	if err != nil {
		errv = reflect.ValueOf(&err).Elem()
	}
	if plan.Result == nil {
		return []reflect.Value{errv}
	}
	if !result.IsValid() {
		result = reflect.Zero(plan.Result)
	}
	return []reflect.Value{result, errv}
}

func (r *Repository[E]) invoke(ctx context.Context, plan *query.Plan, args []any) (reflect.Value, error) {
	switch plan.Kind {
	case query.KindFindByID:
		return r.findByID(ctx, plan, args[0])
	case query.KindExistsByID:
		return r.existsByID(ctx, args[0])
	case query.KindSave:
		return r.save(ctx, plan, args[0])
	case query.KindBatchSave:
		return r.batchSave(ctx, plan, args[0])
	case query.KindDeleteAll:
		return reflect.Value{}, r.deleteAll(ctx)
	case query.KindDelete:
		return reflect.Value{}, r.delete(ctx, plan, args[0])
	case query.KindFindAll:
		return r.selectWhere(ctx, plan, nil)
	case query.KindDerivedQuery:
		return r.derived(ctx, plan, args)
	case query.KindCustomCall:
		return r.call(ctx, plan, args)
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", core.ErrUnresolvableRepositoryMethod, plan)
}

func (r *Repository[E]) get(ctx context.Context, id any) (core.Tuple, error) {
	key, err := r.mapper.KeyFromID(r.meta, id)
	if err != nil {
		return nil, err
	}
	t, err := r.client.Get(ctx, r.meta.SpaceName, key)
	return t, storeError("get", err)
}

func (r *Repository[E]) findByID(ctx context.Context, plan *query.Plan, id any) (reflect.Value, error) {
	t, err := r.get(ctx, id)
	if err != nil || t == nil {
		return reflect.Value{}, err
	}
	return r.mapper.FromTuple(t, plan.Result)
}

func (r *Repository[E]) existsByID(ctx context.Context, id any) (reflect.Value, error) {
	t, err := r.get(ctx, id)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(t != nil), nil
}

// put writes entity and returns the tuple as stored.
func (r *Repository[E]) put(ctx context.Context, entity any) (core.Tuple, error) {
	t, err := r.mapper.ToTuple(entity)
	if err != nil {
		return nil, err
	}
	stored, err := r.client.Put(ctx, r.meta.SpaceName, t)
	if err != nil {
		return nil, storeError("put", err)
	}
	if stored == nil {
		stored = t
	}
	return stored, nil
}

func (r *Repository[E]) save(ctx context.Context, plan *query.Plan, entity any) (reflect.Value, error) {
	stored, err := r.put(ctx, entity)
	if err != nil || plan.Result == nil {
		return reflect.Value{}, err
	}
	return r.mapper.FromTuple(stored, plan.Result)
}

// batchSave writes each entity in turn. The first failure stops the batch
// and is reported with the entities written before it.
func (r *Repository[E]) batchSave(ctx context.Context, plan *query.Plan, batch any) (reflect.Value, error) {
	in := reflect.ValueOf(batch)
	var out reflect.Value
	if plan.Result != nil {
		out = reflect.MakeSlice(plan.Result, 0, in.Len())
	}
	for i := range in.Len() {
		stored, err := r.put(ctx, in.Index(i).Interface())
		if err != nil {
			return out, &core.PartialBatchError{Index: i, Committed: i, Err: err}
		}
		if plan.Result == nil {
			continue
		}
		v, err := r.mapper.FromTuple(stored, plan.Result.Elem())
		if err != nil {
			return out, &core.PartialBatchError{Index: i, Committed: i + 1, Err: err}
		}
		out = reflect.Append(out, v)
	}
	return out, nil
}

// deleteAll removes every tuple of the space one key at a time. It is not
// atomic: writers running alongside may see a partially emptied space. A
// failed delete does not stop the others; every failure is reported.
func (r *Repository[E]) deleteAll(ctx context.Context) error {
	tuples, err := r.client.Select(ctx, r.meta.SpaceName, nil)
	if err != nil {
		return storeError("select", err)
	}

	var errs []error
	for _, t := range tuples {
		key, err := storage.KeyOf(t, r.meta.KeyFields())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := r.client.Delete(ctx, r.meta.SpaceName, key); err != nil {
			errs = append(errs, storeError("delete", err))
		}
	}

	if len(errs) > 0 {
		r.logger.Warn("delete all left tuples behind", "failed", len(errs), "total", len(tuples))
	}
	return errors.Join(errs...)
}

func (r *Repository[E]) delete(ctx context.Context, plan *query.Plan, arg any) error {
	var (
		key core.Tuple
		err error
	)
	if r.isEntity(plan.Params[0]) {
		key, err = r.mapper.KeyOf(arg)
	} else {
		key, err = r.mapper.KeyFromID(r.meta, arg)
	}
	if err != nil {
		return err
	}
	_, err = r.client.Delete(ctx, r.meta.SpaceName, key)
	return storeError("delete", err)
}

func (r *Repository[E]) derived(ctx context.Context, plan *query.Plan, args []any) (reflect.Value, error) {
	var (
		p   storage.Predicate
		err error
	)
	if plan.ByExample {
		p, err = query.Example(args[0], r.meta, r.mapper.Registry())
	} else {
		p, err = plan.Template.Bind(args, r.mapper.Registry())
	}
	if err != nil {
		return reflect.Value{}, err
	}
	return r.selectWhere(ctx, plan, p)
}

// selectWhere runs p against the space and shapes the matches as the
// method's result: every match for a slice, otherwise the first one.
func (r *Repository[E]) selectWhere(ctx context.Context, plan *query.Plan, p storage.Predicate) (reflect.Value, error) {
	tuples, err := r.client.Select(ctx, r.meta.SpaceName, p)
	if err != nil {
		return reflect.Value{}, storeError("select", err)
	}
	if !plan.ReturnsSlice() {
		if len(tuples) == 0 {
			return reflect.Value{}, nil
		}
		return r.mapper.FromTuple(tuples[0], plan.Result)
	}
	out := reflect.MakeSlice(plan.Result, len(tuples), len(tuples))
	for i, t := range tuples {
		v, err := r.mapper.FromTuple(t, plan.Result.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

// call converts the arguments, runs the procedure and projects its tuples
// onto the declared result. Entity arguments travel as their tuples.
func (r *Repository[E]) call(ctx context.Context, plan *query.Plan, args []any) (reflect.Value, error) {
	reg := r.mapper.Registry()
	cells := make([]any, len(args))
	for i, a := range args {
		if r.isEntity(plan.Params[i]) {
			t, err := r.mapper.ToTuple(a)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("argument %d: %w", i+1, err)
			}
			cells[i] = []any(t)
			continue
		}
		cell, err := reg.ToStore(a, plan.Params[i])
		if err != nil {
			return reflect.Value{}, fmt.Errorf("argument %d: %w", i+1, err)
		}
		cells[i] = cell
	}

	tuples, err := r.client.Call(ctx, plan.Procedure, cells...)
	if err != nil {
		return reflect.Value{}, storeError("call "+plan.Procedure, err)
	}
	if plan.Result == nil {
		return reflect.Value{}, nil
	}
	return r.mapper.Project(tuples, plan.Result)
}

func (r *Repository[E]) isEntity(t reflect.Type) bool {
	return t == r.meta.Type || (t.Kind() == reflect.Pointer && t.Elem() == r.meta.Type)
}
