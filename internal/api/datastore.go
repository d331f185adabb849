package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DataOperation is an atomic data-store update operation.
type DataOperation string

const (
	DataAdd      DataOperation = "add"
	DataSubtract DataOperation = "subtract"
	DataMultiply DataOperation = "multiply"
	DataDivide   DataOperation = "divide"
	DataAppend   DataOperation = "append"
	DataPrepend  DataOperation = "prepend"
)

// ParseDataOperation validates an operation name.
func ParseDataOperation(value string) (DataOperation, error) {
	operation := DataOperation(strings.ToLower(strings.TrimSpace(value)))
	switch operation {
	case DataAdd, DataSubtract, DataMultiply, DataDivide, DataAppend, DataPrepend:
		return operation, nil
	default:
		return "", fmt.Errorf("unknown data-store operation %q", value)
	}
}

// DataQuery addresses one key in the game store, or in the configured user's
// store when UserScoped is set.
type DataQuery struct {
	Key        string
	UserScoped bool
}

// DataFetch returns the raw value stored under the key.
func (c *Client) DataFetch(ctx context.Context, query DataQuery) (string, error) {
	params, err := c.dataParams(query)
	if err != nil {
		return "", err
	}
	payload, err := c.Dump(ctx, pathDataFetch, params)
	if err != nil {
		return "", fmt.Errorf("fetch data %q: %w", query.Key, err)
	}
	return payload, nil
}

// DataSet stores value under the key.
func (c *Client) DataSet(ctx context.Context, query DataQuery, value string) error {
	params, err := c.dataParams(query)
	if err != nil {
		return err
	}
	params.Set("data", value)
	if _, err := c.Keypair(ctx, pathDataSet, params); err != nil {
		return fmt.Errorf("set data %q: %w", query.Key, err)
	}
	return nil
}

// DataUpdate applies operation with value to the stored item and returns the
// new value.
func (c *Client) DataUpdate(ctx context.Context, query DataQuery, operation DataOperation, value string) (string, error) {
	if _, err := ParseDataOperation(string(operation)); err != nil {
		return "", err
	}
	params, err := c.dataParams(query)
	if err != nil {
		return "", err
	}
	params.Set("operation", string(operation))
	params.Set("value", value)

	response, err := c.Keypair(ctx, pathDataUpdate, params)
	if err != nil {
		return "", fmt.Errorf("update data %q: %w", query.Key, err)
	}
	return response.Value("data"), nil
}

// DataRemove deletes the key.
func (c *Client) DataRemove(ctx context.Context, query DataQuery) error {
	params, err := c.dataParams(query)
	if err != nil {
		return err
	}
	if _, err := c.Keypair(ctx, pathDataRemove, params); err != nil {
		return fmt.Errorf("remove data %q: %w", query.Key, err)
	}
	return nil
}

// DataKeys lists the keys in the game store, or the user's store.
func (c *Client) DataKeys(ctx context.Context, userScoped bool) ([]string, error) {
	params, err := c.scopedParams(userScoped)
	if err != nil {
		return nil, err
	}
	records, err := c.KeypairRecords(ctx, pathDataKeys, params, "key")
	if err != nil {
		return nil, fmt.Errorf("list data keys: %w", err)
	}

	keys := make([]string, 0, len(records))
	for _, record := range records {
		keys = append(keys, record["key"])
	}
	return keys, nil
}

func (c *Client) dataParams(query DataQuery) (url.Values, error) {
	key := strings.TrimSpace(query.Key)
	if key == "" {
		return nil, errors.New("data-store key must not be empty")
	}
	params, err := c.scopedParams(query.UserScoped)
	if err != nil {
		return nil, err
	}
	params.Set("key", key)
	return params, nil
}
