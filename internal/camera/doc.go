// Package camera カメラデバイスの取得を担う
//
// # 責務
// - 優先順位付きの候補リストから最初に使えるカメラを取得する
// - 存在しないデバイスパスのスキップ
// - キャプチャ設定のベストエフォート適用とテスト読み込みによる生存確認
// - 全候補が失敗した場合の診断情報付きエラー
// - V4L2デバイスの検出と実名取得
//
// # 動作
//   - Acquirer: 候補を先頭から順に試し、最初にフレームが読めたデバイスを返す
//   - 失敗したデバイスは必ず解放する（ハンドルをリークしない）
//   - 候補の順序は外部から与えられたものをそのまま使う
//   - Discovery: /dev/video* の検出と v4l2-ctl による情報取得
//
// # 前提要件
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
