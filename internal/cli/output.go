package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nao1215/travelgate/internal/config"
	"gopkg.in/yaml.v3"
)

// print は値を設定された形式で出力する。
// YAMLの場合もキー名はJSONのタグに揃える。
func (a *app) print(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("出力のシリアライズに失敗: %w", err)
	}

	if a.cfg.Output.Format != config.FormatYAML {
		_, err := fmt.Fprintln(w, string(b))
		return err
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return fmt.Errorf("出力の変換に失敗: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("YAMLの出力に失敗: %w", err)
	}
	return enc.Close()
}
