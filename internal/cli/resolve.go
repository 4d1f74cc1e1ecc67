package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/store"
)

// resolveStoredSource finds an archived source by numeric ID, @username,
// bare username, or exact title.
func resolveStoredSource(ctx context.Context, st *store.Store, ref string) (archive.Source, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		src, err := st.GetSource(ctx, id)
		if err != nil {
			return archive.Source{}, err
		}
		return src, nil
	}

	infos, err := st.ListSources(ctx)
	if err != nil {
		return archive.Source{}, err
	}
	name := strings.TrimPrefix(ref, "@")
	for _, info := range infos {
		if strings.EqualFold(info.Source.Username, name) || info.Source.Title == ref {
			return info.Source, nil
		}
	}
	return archive.Source{}, fmt.Errorf("no archived source matches %q", ref)
}
