package source

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/root-talis/henka/v2/schema"
)

var ErrInvalidStep = errors.New("invalid migration step")

// Step keys of the YAML step format. A steps document is a list where every
// item has exactly one of these keys:
//
//	- createTable:
//	    name: users
//	    columns:
//	      - {name: id, type: bigint}
//	    primaryKey: [id]
//	- addColumn: {table: users, name: email, type: text, nullable: true}
const (
	KeyAddColumn      = "addColumn"
	KeyDropColumn     = "dropColumn"
	KeyCreateTable    = "createTable"
	KeyDropTable      = "dropTable"
	KeyCreateIndex    = "createIndex"
	KeyDropIndex      = "dropIndex"
	KeyAddForeignKey  = "addForeignKey"
	KeyDropForeignKey = "dropForeignKey"
)

// DecodeSteps parses a YAML steps document. An empty document has no steps.
func DecodeSteps(r io.Reader) ([]schema.Operation, error) {
	var items []map[string]yaml.Node

	if err := yaml.NewDecoder(r).Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	ops := make([]schema.Operation, 0, len(items))
	for i, item := range items {
		if len(item) != 1 {
			return nil, fmt.Errorf("%w: step %d must have exactly one operation key, got %d", ErrInvalidStep, i+1, len(item))
		}

		for key, node := range item {
			node := node

			op, err := decodeOperation(key, &node)
			if err != nil {
				return nil, fmt.Errorf("%w: step %d (%s): %s", ErrInvalidStep, i+1, key, err.Error())
			}
			ops = append(ops, op)
		}
	}

	return ops, nil
}

func decodeOperation(key string, node *yaml.Node) (schema.Operation, error) {
	switch key {
	case KeyAddColumn:
		return decodeAs[schema.AddColumn](node)
	case KeyDropColumn:
		return decodeAs[schema.DropColumn](node)
	case KeyCreateTable:
		return decodeAs[schema.CreateTable](node)
	case KeyDropTable:
		return decodeAs[schema.DropTable](node)
	case KeyCreateIndex:
		return decodeAs[schema.CreateIndex](node)
	case KeyDropIndex:
		return decodeAs[schema.DropIndex](node)
	case KeyAddForeignKey:
		return decodeAs[schema.AddForeignKey](node)
	case KeyDropForeignKey:
		return decodeAs[schema.DropForeignKey](node)
	default:
		return nil, fmt.Errorf("unknown operation %q", key)
	}
}

func decodeAs[T schema.Operation](node *yaml.Node) (schema.Operation, error) {
	var op T
	if err := node.Decode(&op); err != nil {
		return nil, err
	}
	return op, nil
}
