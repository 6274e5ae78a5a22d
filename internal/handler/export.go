package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/aggregate"
	"github.com/hisyeo/kennings/internal/repository"
)

type ExportHandler struct {
	repo repository.KenningRepository
}

func NewExportHandler(repo repository.KenningRepository) *ExportHandler {
	return &ExportHandler{repo: repo}
}

// Export dumps every published kenning as json, csv or markdown.
func (h *ExportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	switch format {
	case "json", "csv", "md", "markdown":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Use json, csv, or md"})
		return
	}

	rows, err := h.repo.FetchAllPublished(c.Request.Context())
	if err != nil {
		storageError(c, "export", err)
		return
	}
	grouped := aggregate.Group(rows)
	if !attachVotes(c, h.repo, grouped) {
		return
	}

	stamp := time.Now().Format("20060102")
	switch format {
	case "json":
		h.exportJSON(c, grouped, stamp)
	case "csv":
		h.exportCSV(c, grouped, stamp)
	default:
		h.exportMarkdown(c, grouped, stamp)
	}
}

func (h *ExportHandler) exportJSON(c *gin.Context, grouped *aggregate.Grouped, stamp string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=kennings-%s.json", stamp))
	c.JSON(http.StatusOK, gin.H{"concepts": grouped})
}

func voteSummary(k *aggregate.KenningGroup) string {
	if len(k.Words) == 0 {
		return ""
	}
	parts := make([]string, 0, len(k.Words[0].Votes))
	for _, v := range k.Words[0].Votes {
		parts = append(parts, fmt.Sprintf("%s %s %d", v.Emoji, v.VoteType, v.Total))
	}
	return strings.Join(parts, ", ")
}

func (h *ExportHandler) exportCSV(c *gin.Context, grouped *aggregate.Grouped, stamp string) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, grouped); err != nil {
		log.Printf("[Export] csv failed (request %s): %v", c.GetString("requestID"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=kennings-%s.csv", stamp))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// writeCSV writes one line per kenning under a header row.
func writeCSV(w io.Writer, grouped *aggregate.Grouped) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"Concept", "Kenning", "Definition", "Latin", "Abugida", "Syllabary", "Votes"}); err != nil {
		return err
	}

	for _, concept := range grouped.Groups() {
		for _, k := range concept.Kennings {
			if k.KenningID == nil || len(k.Words) == 0 {
				continue
			}
			var abugida, syllabary []string
			for _, w := range k.Words {
				abugida = append(abugida, w.Abugida)
				syllabary = append(syllabary, w.Syllabary)
			}
			err := writer.Write([]string{
				concept.Concept,
				strconv.FormatInt(*k.KenningID, 10),
				k.Words[0].Definition,
				kenningText(k),
				strings.Join(abugida, " "),
				strings.Join(syllabary, " "),
				voteSummary(k),
			})
			if err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func (h *ExportHandler) exportMarkdown(c *gin.Context, grouped *aggregate.Grouped, stamp string) {
	var buf bytes.Buffer

	buf.WriteString("# Hîsyêô Kennings\n\n")
	buf.WriteString(fmt.Sprintf("**Exported:** %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	for _, concept := range grouped.Groups() {
		buf.WriteString(fmt.Sprintf("## %s\n\n", concept.Concept))
		if len(concept.Kennings) > 0 && len(concept.Kennings[0].Words) > 0 {
			buf.WriteString(fmt.Sprintf("*%s*\n\n", concept.Kennings[0].Words[0].Definition))
		}
		for _, k := range concept.Kennings {
			buf.WriteString(fmt.Sprintf("- **%s**", kenningText(k)))
			if votes := voteSummary(k); votes != "" {
				buf.WriteString(fmt.Sprintf(" (%s)", votes))
			}
			buf.WriteString("\n")
		}
		buf.WriteString("\n---\n\n")
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=kennings-%s.md", stamp))
	c.Data(http.StatusOK, "text/markdown", buf.Bytes())
}
