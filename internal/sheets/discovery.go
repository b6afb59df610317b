package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"

	"sheetsync/internal"
)

// Discovery lists the spreadsheets in one Drive folder and picks a single
// canonical document per logical name.
type Discovery struct {
	drive    *drive.Service
	folderID string
}

func NewDiscovery(svc *drive.Service, folderID string) *Discovery {
	return &Discovery{drive: svc, folderID: folderID}
}

// VerifyFolder checks that the folder is reachable and logs its name and
// how many files it holds. Failure is logged and reported, never fatal.
func (d *Discovery) VerifyFolder(ctx context.Context) error {
	folder, err := d.drive.Files.Get(d.folderID).Fields("name, mimeType").Context(ctx).Do()
	if err != nil {
		slog.Error("folder access failed", "folder_id", d.folderID, "error", err)
		return err
	}
	slog.Info("folder found", "name", folder.Name)

	listing, err := d.drive.Files.List().
		Q(fmt.Sprintf("'%s' in parents", d.folderID)).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		slog.Warn("folder listing failed", "folder_id", d.folderID, "error", err)
		return nil
	}
	slog.Info("folder contents", "total", len(listing.Files))
	return nil
}

// ListCanonical returns one document per distinct display name, newest
// first from the provider. A listing failure yields an empty result: the
// run continues with zero discovered work.
func (d *Discovery) ListCanonical(ctx context.Context) []internal.SourceDocument {
	query := fmt.Sprintf("'%s' in parents and (mimeType='%s' or mimeType='%s')",
		d.folderID, internal.MimeGoogleSheet, internal.MimeExcelWorkbook)

	resp, err := d.drive.Files.List().
		Q(query).
		Fields("files(id, name, mimeType, createdTime)").
		OrderBy("createdTime desc").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("listing spreadsheets failed", "folder_id", d.folderID, "error", err)
		return nil
	}

	docs := make([]internal.SourceDocument, 0, len(resp.Files))
	for _, f := range resp.Files {
		docs = append(docs, toSourceDocument(f))
	}

	selected := SelectCanonical(docs)
	slog.Info("spreadsheets discovered", "total", len(docs), "canonical", len(selected))
	return selected
}

// DocumentIDs returns the IDs of docs in a freshly allocated slice.
func DocumentIDs(docs []internal.SourceDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}

// SelectCanonical groups documents by display name with the extension
// stripped and keeps one per group: the native Google Sheet if present,
// otherwise the most recently created workbook.
func SelectCanonical(docs []internal.SourceDocument) []internal.SourceDocument {
	groups := map[string][]internal.SourceDocument{}
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		name := baseName(doc.Name)
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], doc)
	}

	out := make([]internal.SourceDocument, 0, len(order))
	for _, name := range order {
		out = append(out, pickVersion(groups[name]))
	}
	return out
}

func pickVersion(versions []internal.SourceDocument) internal.SourceDocument {
	for _, v := range versions {
		if v.IsNativeSheet() {
			return v
		}
	}
	newest := versions[0]
	for _, v := range versions[1:] {
		if v.CreatedTime.After(newest.CreatedTime) {
			newest = v
		}
	}
	return newest
}

// baseName strips the part after the last dot, if any: "Sales.xlsx"
// becomes "Sales", "Sales" stays as is.
func baseName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

func toSourceDocument(f *drive.File) internal.SourceDocument {
	created, err := time.Parse(time.RFC3339, f.CreatedTime)
	if err != nil {
		created = time.Time{}
	}
	return internal.SourceDocument{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		CreatedTime: created,
	}
}
