package transcript

// Message はチャットエクスポート内の1メッセージを表す
// 生成元のTranscriptが所有し、構築後は変更しない
type Message struct {
	Time    string `json:"time"`     // 時刻（hour:minute[:second][meridiem]）
	Date    string `json:"date"`     // 正規化済み日付（month/day/year）
	Sender  string `json:"sender"`   // 送信者名
	Text    string `json:"text"`     // 本文（継続行を含む場合は複数行）
	IsMedia bool   `json:"is_media"` // 添付省略プレースホルダを含むか
}

// Transcript は解析済みチャットエクスポート全体を表す
// アップロードごとに新規作成され、次のアップロードで全置換される
type Transcript struct {
	Messages     []Message `json:"messages"`        // ファイル出現順（再ソートしない）
	Participants []string  `json:"participants"`    // 昇順ソート済み
	Title        string    `json:"title,omitempty"` // 任意のタイトル
}
