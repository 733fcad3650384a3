package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Record is one decoded document.
type Record[T any] struct {
	ID   string
	Data T
}

// Collection is a typed view of one collection path such as
// users/{uid}/favorites. T must be decodable with DataTo.
type Collection[T any] struct {
	provider *Provider
	path     string
}

// NewCollection binds a collection path. The path must have an odd number of
// segments and no blank segment.
func NewCollection[T any](provider *Provider, path string) (*Collection[T], error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	path = strings.Trim(strings.TrimSpace(path), "/")
	segments := strings.Split(path, "/")
	if path == "" || len(segments)%2 == 0 {
		return nil, fmt.Errorf("firestore: %q is not a collection path", path)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return nil, fmt.Errorf("firestore: %q has an empty segment", path)
		}
	}
	return &Collection[T]{provider: provider, path: path}, nil
}

// Path returns the bound collection path.
func (c *Collection[T]) Path() string { return c.path }

// Put writes value under id, replacing any existing document.
func (c *Collection[T]) Put(ctx context.Context, id string, value T) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, value)
	return WrapError(c.path+".put", err)
}

// Delete removes id. A missing document is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return WrapError(c.path+".delete", err)
}

// List decodes every document the shaped query returns.
func (c *Collection[T]) List(ctx context.Context, shape func(firestore.Query) firestore.Query) ([]Record[T], error) {
	query, err := c.query(ctx)
	if err != nil {
		return nil, err
	}
	if shape != nil {
		query = shape(query)
	}

	var records []Record[T]
	err = each(ctx, query, func(snap *firestore.DocumentSnapshot) error {
		var data T
		if err := snap.DataTo(&data); err != nil {
			return fmt.Errorf("firestore: decode %s/%s: %w", c.path, snap.Ref.ID, err)
		}
		records = append(records, Record[T]{ID: snap.Ref.ID, Data: data})
		return nil
	})
	if err != nil {
		return nil, WrapError(c.path+".list", err)
	}
	return records, nil
}

// IDs lists document ids only, using an empty projection.
func (c *Collection[T]) IDs(ctx context.Context) ([]string, error) {
	query, err := c.query(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = each(ctx, query.Select(), func(snap *firestore.DocumentSnapshot) error {
		ids = append(ids, snap.Ref.ID)
		return nil
	})
	if err != nil {
		return nil, WrapError(c.path+".ids", err)
	}
	return ids, nil
}

func (c *Collection[T]) query(ctx context.Context) (firestore.Query, error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	return client.Collection(c.path).Query, nil
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("firestore: invalid document id %q", id)
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.path).Doc(id), nil
}

func each(ctx context.Context, query firestore.Query, fn func(*firestore.DocumentSnapshot) error) error {
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
