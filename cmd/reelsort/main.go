// Command reelsort drives an Instagram Reels tab and sorts the feed by
// views, likes, comments, engagement, recency or at random.
package main

import "github.com/ibeckermayer/reelsort/cmd/reelsort/cmd"

func main() {
	cmd.Execute()
}
