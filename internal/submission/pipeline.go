package submission

import (
	"context"
	"errors"
	"log"
)

// Stage はパイプラインの段階。
type Stage string

const (
	// StageStart は未実行であることを表す。
	StageStart Stage = "start"
	// StageUploading は添付ファイルをアップロード中であることを表す。
	StageUploading Stage = "uploading"
	// StageComposing は申請レコードを作成中であることを表す。
	StageComposing Stage = "composing"
	// StageDone は申請レコードの作成が完了したことを表す。
	StageDone Stage = "done"
	// StageFailed はいずれかの段階で失敗したことを表す。
	StageFailed Stage = "failed"
)

// ErrPipelineUsed は実行済みのパイプラインを再実行しようとしたことを表す。
var ErrPipelineUsed = errors.New("パイプラインは実行済みです")

// Request は事前アップロード方式の申請内容。
type Request struct {
	// Type は申請の種類。空でなければ data.type に設定する。
	Type string
	// Endpoint は申請レコードの作成先。空の場合は Endpoint(Type) を使う。
	Endpoint string
	// Fields は申請レコードのフィールド。
	Fields map[string]any
	// Attachments はアップロードする添付ファイル。指定順にアップロードする。
	Attachments []Attachment
}

// Pipeline は1件の申請の送信状態を保持する。
// 状態遷移: start → uploading → composing → done、uploading/composingからはfailed。
// 1つのPipelineは1回だけ実行できる。
type Pipeline struct {
	svc         *Service
	req         Request
	stage       Stage
	uploaded    []Uploaded
	failedIndex int
	record      *Record
	err         error
}

func newPipeline(svc *Service, req Request) *Pipeline {
	return &Pipeline{
		svc:         svc,
		req:         req,
		stage:       StageStart,
		failedIndex: -1,
	}
}

// Run はアップロードと申請レコードの作成を順に実行する。
// k件目のアップロードが失敗した場合、k+1件目以降のアップロードと作成は行わない。
func (p *Pipeline) Run(ctx context.Context) (*Record, error) {
	if p.stage != StageStart {
		return nil, ErrPipelineUsed
	}

	// Stage 1: 添付ファイルを1件ずつアップロードする
	p.stage = StageUploading
	for i, a := range p.req.Attachments {
		up, err := p.svc.Upload(ctx, a)
		if err != nil {
			p.failedIndex = i
			return nil, p.fail(err)
		}
		p.uploaded = append(p.uploaded, up)
	}

	// Stage 2: アップロードIDを参照する申請レコードを作成する
	p.stage = StageComposing
	endpoint := p.req.Endpoint
	if endpoint == "" {
		endpoint = Endpoint(p.req.Type)
	}

	var resp recordEnvelope
	if err := p.svc.exec.PostJSON(ctx, endpoint, map[string]any{"data": p.compose()}, &resp); err != nil {
		return nil, p.fail(err)
	}
	if resp.Data == nil {
		return nil, p.fail(ErrMissingRecord)
	}

	p.stage = StageDone
	p.record = resp.Data
	log.Printf("[Pipeline] 申請を作成しました: endpoint=%s, tracking_id=%s, attachments=%d",
		endpoint, p.record.TrackingID, len(p.uploaded))
	return p.record, nil
}

// compose は申請レコードのdataを組み立てる。
// 呼び出し側のフィールドにアップロードIDを重ね、最後にattachmentsとtypeを設定する。
// attachments はサーバーが添付として扱うIDの一覧で、アップロードした順に並ぶ。
func (p *Pipeline) compose() map[string]any {
	data := make(map[string]any, len(p.req.Fields)+len(p.uploaded)+1)
	for k, v := range p.req.Fields {
		data[k] = v
	}

	counts := make(map[string]int)
	for _, a := range p.req.Attachments {
		counts[a.Field]++
	}
	for i, a := range p.req.Attachments {
		id := p.uploaded[i].ID
		if counts[a.Field] == 1 {
			data[a.Field] = id
			continue
		}
		ids, _ := data[a.Field].([]int64)
		data[a.Field] = append(ids, id)
	}

	if len(p.uploaded) > 0 {
		ids := make([]int64, 0, len(p.uploaded))
		for _, u := range p.uploaded {
			ids = append(ids, u.ID)
		}
		data[attachmentsField] = ids
	}
	if p.req.Type != "" {
		data["type"] = p.req.Type
	}
	return data
}

// fail はパイプラインを失敗状態にする。アップロード済みのファイルは削除しない。
func (p *Pipeline) fail(err error) error {
	failedStage := p.stage
	p.stage = StageFailed
	p.err = err

	log.Printf("[Pipeline] 申請の送信に失敗: stage=%s, error=%v", failedStage, err)
	if len(p.uploaded) > 0 {
		ids := make([]int64, 0, len(p.uploaded))
		for _, u := range p.uploaded {
			ids = append(ids, u.ID)
		}
		log.Printf("[Pipeline] 参照されないアップロード済みファイルが残ります: ids=%v", ids)
	}
	return err
}

// Stage は現在の段階を返す。
func (p *Pipeline) Stage() Stage {
	return p.stage
}

// Uploaded はアップロードに成功したファイルを返す。
func (p *Pipeline) Uploaded() []Uploaded {
	return append([]Uploaded(nil), p.uploaded...)
}

// Orphans は失敗により申請レコードから参照されなくなったアップロード済みファイルを返す。
func (p *Pipeline) Orphans() []Uploaded {
	if p.stage != StageFailed {
		return nil
	}
	return p.Uploaded()
}

// FailedIndex は失敗したアップロードの添字（0始まり）を返す。アップロードで失敗していなければ-1を返す。
func (p *Pipeline) FailedIndex() int {
	return p.failedIndex
}

// Record は作成された申請レコードを返す。
func (p *Pipeline) Record() *Record {
	return p.record
}

// Err は失敗の原因を返す。
func (p *Pipeline) Err() error {
	return p.err
}
