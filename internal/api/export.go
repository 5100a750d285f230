// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/feed"
	"github.com/permitwatch/permitwatch/internal/logging"
	"github.com/permitwatch/permitwatch/internal/models"
)

// exportHeader is the CSV column order of the export endpoint.
var exportHeader = []string{
	"permit_id",
	"city",
	"permit_type",
	"work_class",
	"zip_code",
	"district",
	"square_footage",
	"location",
	"contractor",
	"valuation_amount",
	"issued_date",
	"applied_date",
	"ingested_at",
}

// exportBatchSize is the page size used to stream the full result set
// without holding it in memory.
const exportBatchSize = 1000

// ExportPermits streams the filtered permit set as CSV.
//
// The export honors the same filters as the list endpoint but ignores
// pagination: every matching row is written. encoding/csv applies RFC 4180
// quoting, doubling embedded double quotes.
func (h *Handler) ExportPermits(w http.ResponseWriter, r *http.Request) {
	filter := database.PermitFilter{
		City:       getStringParam(r, "city"),
		WorkClass:  getStringParam(r, "work_class"),
		Contractor: getStringParam(r, "contractor"),
		Search:     getStringParam(r, "search"),
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=permits-%s.csv", time.Now().UTC().Format("2006-01-02")))

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		logging.Error().Err(err).Msg("CSV export header write failed")
		return
	}

	filter.Limit = exportBatchSize
	for {
		permits, err := h.permits.QueryPermits(r.Context(), filter)
		if err != nil {
			// Headers are out; all we can do is stop the stream.
			logging.Error().Err(err).Msg("CSV export query failed")
			return
		}
		for i := range permits {
			if err := cw.Write(exportRow(&permits[i])); err != nil {
				logging.Error().Err(err).Msg("CSV export row write failed")
				return
			}
		}
		if len(permits) < exportBatchSize {
			break
		}
		filter.Offset += exportBatchSize
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.Error().Err(err).Msg("CSV export flush failed")
	}
}

func exportRow(p *models.Permit) []string {
	return []string{
		p.PermitID,
		p.City,
		p.PermitType,
		p.WorkClass,
		p.ZipCode,
		p.District,
		p.SquareFootage,
		p.Location,
		p.Contractor,
		p.ValuationAmount,
		feed.FormatDate(p.IssuedDate),
		feed.FormatDate(p.AppliedDate),
		p.IngestedAt.UTC().Format(time.RFC3339),
	}
}
