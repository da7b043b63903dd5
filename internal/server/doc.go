// Package server は、在席判定の状態を公開するHTTPサーバーを管理します。
//
// 責務:
//   - ヘルスチェックとセッション状態のJSON配信
//   - WebSocketによる在席イベントのリアルタイム配信
//   - グレースフルシャットダウン
//
// 動作:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - 複数クライアントの同時接続をサポート（遅いクライアントのイベントは破棄する）
package server
