// Package tracking は追跡番号から申請レコードを検索する。
package tracking

import (
	"context"

	"github.com/nao1215/travelgate/internal/submission"
	"github.com/nao1215/travelgate/pkg/resource"
)

// Lookup は申請の種類と追跡番号で申請レコードを検索する。
// 該当するレコードがない場合は nil, nil を返す。見つからないことはエラーではない。
func Lookup(ctx context.Context, g resource.Getter, appType, trackingID string) (*submission.Record, error) {
	path := resource.WithQuery(submission.Endpoint(appType), resource.Eq("tracking_id", trackingID))

	records, err := resource.GetMany[submission.Record](ctx, g, path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
