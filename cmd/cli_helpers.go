package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/josephgoksu/IdeaForge/internal/memory"
	"github.com/josephgoksu/IdeaForge/internal/util"
	"github.com/spf13/viper"
)

func isJSON() bool {
	return viper.GetBool("json")
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

// resolveProject expands an ID prefix to a full project ID.
func resolveProject(ctx context.Context, store *memory.SQLiteStore, idOrPrefix string) (string, error) {
	id, err := util.ResolveProjectID(ctx, store, idOrPrefix)
	if errors.Is(err, util.ErrNotFound) {
		return "", fmt.Errorf("no project matches %q", idOrPrefix)
	}
	return id, err
}
