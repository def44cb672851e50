package notify

var DeliverScriptHash = deliverScript.Hash()
