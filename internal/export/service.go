// Package export renders extracted invoices to XLSX for download or audit.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

// Service produces XLSX bytes for an extracted invoice.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// InvoiceXLSX returns a workbook with one row per line item plus a header
// block for the document fields. Item order follows the invoice.
func (s *Service) InvoiceXLSX(inv *entity.ExtractedInvoice) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Itens"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	// document block
	issued := ""
	if inv.IssuedAt != nil {
		issued = inv.IssuedAt.Format("2006-01-02 15:04")
	}
	docRows := [][]any{
		{"Emitente", inv.IssuerName},
		{"CNPJ", inv.IssuerCNPJ},
		{"Número", inv.Number},
		{"Série", inv.Series},
		{"Emissão", issued},
		{"Chave de Acesso", inv.AccessKey},
		{"Total", inv.Total},
	}
	for i, row := range docRows {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	headers := []string{
		"Código", "Descrição", "Nome", "Qtd", "Un",
		"Preço Unit.", "Total", "Desconto", "Categoria", "Subcategoria",
	}
	headerRow := len(docRows) + 2
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, item := range inv.Items {
		values := []any{
			item.Code, item.Description, item.NormalizedName, item.Quantity, item.Unit,
			item.UnitPrice, item.TotalPrice, item.Discount, item.Category, item.Subcategory,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, headerRow+1+i)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Debug("export.invoice_xlsx",
		"items", len(inv.Items), "bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
