package category

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"price_tracker/models"
)

// Sink stores imported categories.
type Sink interface {
	UpsertCategories(ctx context.Context, cats []models.Category) error
}

type treeNode struct {
	Category struct {
		CategoryID   string `json:"categoryId"`
		CategoryName string `json:"categoryName"`
	} `json:"category"`
	Children []treeNode `json:"childCategoryTreeNodes"`
}

type tree struct {
	Root *treeNode `json:"rootCategoryNode"`
}

// ParseTree flattens a taxonomy tree document ({"rootCategoryNode": ...})
// into rows with parent ids and depth.
func ParseTree(r io.Reader) ([]models.Category, error) {
	var t tree
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode category tree: %w", err)
	}
	if t.Root == nil {
		return nil, fmt.Errorf("decode category tree: missing rootCategoryNode")
	}

	var out []models.Category
	if err := flatten(t.Root, nil, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(n *treeNode, parent *int64, level int, out *[]models.Category) error {
	id, err := strconv.ParseInt(n.Category.CategoryID, 10, 64)
	if err != nil {
		return fmt.Errorf("category %q: bad id: %w", n.Category.CategoryName, err)
	}
	*out = append(*out, models.Category{
		CategoryID: id,
		Name:       n.Category.CategoryName,
		ParentID:   parent,
		Level:      level,
	})
	for i := range n.Children {
		pid := id
		if err := flatten(&n.Children[i], &pid, level+1, out); err != nil {
			return err
		}
	}
	return nil
}

// ImportTree parses a taxonomy document and upserts every node.
func ImportTree(ctx context.Context, r io.Reader, sink Sink) (int, error) {
	cats, err := ParseTree(r)
	if err != nil {
		return 0, err
	}
	if err := sink.UpsertCategories(ctx, cats); err != nil {
		return 0, fmt.Errorf("store categories: %w", err)
	}
	return len(cats), nil
}
