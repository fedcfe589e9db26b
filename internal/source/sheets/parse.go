package sheets

import (
	"encoding/json"
	"fmt"
	"strings"

	"eaccountant/internal/core"
	"eaccountant/internal/source"
)

// parseSales converts a values matrix (as returned by the Sheets API) into
// sales records. The first row holds the headers; columns are matched by
// name so their order in the tab does not matter.
func parseSales(values [][]interface{}, fields source.FieldMap) (core.Batch[core.Record], error) {
	fields = fields.WithDefaults()
	body, err := tabJSON(values, fields.Category, fields.Bucket, fields.Amount, fields.Quantity)
	if err != nil {
		return core.Batch[core.Record]{}, err
	}
	return source.DecodeSales(body, fields)
}

func parseProfits(values [][]interface{}) (core.Batch[core.ProfitRow], error) {
	body, err := tabJSON(values, "period", "revenue", "cogs", "expenses")
	if err != nil {
		return core.Batch[core.ProfitRow]{}, err
	}
	return source.DecodeProfits(body)
}

func parseProducts(values [][]interface{}) (core.Batch[core.Product], error) {
	body, err := tabJSON(values, "name", "stock")
	if err != nil {
		return core.Batch[core.Product]{}, err
	}
	return source.DecodeProducts(body)
}

// tabJSON re-encodes the tab as the JSON array served by the REST backend,
// so both sources share one decoder. Empty cells are left out and fully
// empty rows are skipped.
func tabJSON(values [][]interface{}, required ...string) ([]byte, error) {
	if len(values) == 0 {
		return []byte("[]"), nil
	}
	headers := toStrings(values[0])
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = normalizeHeader(h)
	}
	var missing []string
	for _, name := range required {
		if indexOf(keys, name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unexpected sheet header: missing %s; got headers=%v",
			source.ErrMalformedPayload, strings.Join(missing, ","), headers)
	}

	rows := make([]map[string]interface{}, 0, len(values)-1)
	for _, raw := range values[1:] {
		obj := make(map[string]interface{}, len(keys))
		for i, key := range keys {
			if key == "" || i >= len(raw) {
				continue
			}
			v := raw[i]
			if s, ok := v.(string); ok {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				v = s
			}
			if v == nil {
				continue
			}
			obj[key] = v
		}
		if len(obj) == 0 {
			continue
		}
		rows = append(rows, obj)
	}
	return json.Marshal(rows)
}

// normalizeHeader maps "Total Sales" to "total_sales".
func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
