// Package vision はOpenCV (gocv) を使ったキャプチャ・顔検出・描画・表示をまとめる
//
// 顔検出アルゴリズム自体や映像のデコード・表示はOpenCVに任せ、このパッケージは
// それらを1フレーム単位の処理 (Pipeline.Step) として組み立てるだけに留める。
//
// # 前提要件
//   - OpenCV 4.x (gocv のインストール手順に従う)
//   - haarcascade_frontalface_default.xml
package vision
